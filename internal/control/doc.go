// Package control turns operator input into pipeline commands.
//
// Commands are pause, resume and quit. They arrive from several sources and
// are funnelled into one buffered Channel that the scheduler drains between
// cycles, so no source ever touches the buffer or sinks directly:
//
//	stdin     q / w / r (or the words quit / pause / resume)
//	signals   SIGINT and SIGTERM become quit
//	mqtt      payload pause | resume | quit on <prefix>/<device>/control
//	http      POST /api/v1/control/{command} (see the status package)
//
// Unknown input is logged and ignored. Sending the same command twice is
// harmless; the scheduler treats a repeat as a no-op.
package control
