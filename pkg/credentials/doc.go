// Package credentials provisions login credentials in backend-specific
// namespaces. Operations dispatch to an in-process namespace module when one
// is registered and otherwise shell out to a privileged helper program,
// whose exit code is translated into a classified operation error.
package credentials
