package employees

import "time"

// Employee is the holder of custody items.
type Employee struct {
	Name         string    `json:"name"`
	EmployeeName string    `json:"employee_name"`
	Company      string    `json:"company"`
	Department   string    `json:"department"`
	Email        string    `json:"email"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
