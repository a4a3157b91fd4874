package temporalworker

import (
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/activity"
)

func activityRegisterOptions(name string) activity.RegisterOptions {
	return activity.RegisterOptions{Name: name}
}

func isAlreadyStarted(err error) bool {
	_, ok := err.(*serviceerror.WorkflowExecutionAlreadyStarted)
	return ok
}
