package capture

import "time"

// ExportScanAndPublish exposes scanAndPublish to external tests that
// want deterministic control over "now" without waiting on a ticker.
func ExportScanAndPublish(s *Scheduler, now time.Time) {
	s.scanAndPublish(now)
}
