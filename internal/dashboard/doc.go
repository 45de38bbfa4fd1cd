// Package dashboard serves a single-page status view of the logger.
//
// The page is embedded into the binary with go:embed and polls the status
// API (/api/v1/health, /api/v1/reading/latest, /api/v1/sinks and
// /api/v1/events) from the browser. Pause, resume and quit buttons post to
// /api/v1/control/{command}.
//
// Setting api.dashboard_dir serves the assets from disk instead, so the page
// can be edited without rebuilding.
package dashboard
