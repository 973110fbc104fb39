package shared

import "fmt"

// RolloverLockKey builds the redis key guarding an organization's rollover.
func RolloverLockKey(orgID int64) string {
	return fmt.Sprintf("gl:org:%d:rollover:lock", orgID)
}

// MaintenanceKey builds the redis key flagging an organization as under maintenance.
func MaintenanceKey(orgID int64) string {
	return fmt.Sprintf("gl:org:%d:maintenance", orgID)
}
