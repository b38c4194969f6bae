package entity

import "time"

// Employee is reference data from the employee master
type Employee struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Designation string `json:"designation"`
	Project     string `json:"project"`
	Manager     string `json:"manager"`
	Email       string `json:"email"`
	Contact     string `json:"contact"`
}

// AttendanceRecord is one (employee, date) presence entry
type AttendanceRecord struct {
	EmployeeID string    `json:"employee_id"`
	Date       time.Time `json:"date"`
	Present    bool      `json:"present"`
}
