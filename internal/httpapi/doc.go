// Package httpapi is the JSON surface of the cycled daemon: password login, cookie-based refresh
// rotation, and the cycle statistics endpoints behind a bearer guard.
package httpapi
