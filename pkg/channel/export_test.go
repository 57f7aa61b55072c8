package channel

// PendingCount reports the size of the pending table, for tests.
func PendingCount(c *Channel) int {
	return c.pendingCount()
}
