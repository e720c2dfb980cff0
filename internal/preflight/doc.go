// Package preflight provides readiness checks for the binaries and
// filesystem paths clipforge depends on.
//
// The convert command runs RunAll before submitting a batch so a doomed run
// fails up front, and the doctor command renders individual results for the
// user.
package preflight
