// Package services defines shared error markers for the external tool
// integrations and the scheduler.
//
// The sentinel errors classify failures into the terminal states a job can
// reach: environment problems that abort a whole batch, per-job process
// failures that never touch sibling jobs, and timeouts funneled through the
// cancellation path. Wrap keeps the component/operation context on the
// message while errors.Is keeps the classification machine-checkable.
package services
