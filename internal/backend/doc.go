// Package backend defines the interface implemented by command-line module
// runners, along with the types exchanged between the execution engine and
// those runners.
package backend
