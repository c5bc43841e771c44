// Package memory provides mutex-guarded, process-local implementations of
// the shopauth stores and permission.Graph. It backs tests and single-node
// development; state is lost on restart.
package memory
