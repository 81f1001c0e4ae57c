// Package tubetree converts a spatial object made of disconnected tube
// segments into a connected tree by running the external TubesToTree module.
//
// A conversion writes the input node to a temporary .tre file, asks the
// execution engine for a transient execution record, runs the module to
// completion and loads the module's output file back into the output node.
// The execution record is removed before Apply returns, whatever the outcome.
package tubetree
