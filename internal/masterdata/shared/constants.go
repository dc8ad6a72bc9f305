package shared

const (
	// EmployeeStatusActive marks an employee that can receive custody.
	EmployeeStatusActive = "Active"
	// EmployeeStatusInactive marks a suspended employee.
	EmployeeStatusInactive = "Inactive"
	// EmployeeStatusLeft marks an employee who left the company.
	EmployeeStatusLeft = "Left"
)
