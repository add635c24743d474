// Package billing holds the invoice aggregate and the pure rules it is built
// on: amount computation, the status table, number formatting and the error
// taxonomy shared by the service and transport layers. Nothing here performs
// I/O.
package billing
