// Package appliance exposes the stove as a query/command capability.
//
// The stove speaks a proprietary UDP protocol. Rather than reimplementing it
// the bridge drives the pyduro command-line tool through the process package
// and treats each invocation's stdout as a JSON state snapshot.
package appliance
