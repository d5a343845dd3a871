// Package httpapi talks to the remote REST API: one Client per entity resource and a Prober that
// keeps a changesync.ConnectivityState current.
package httpapi
