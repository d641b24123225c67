package model

// Vehicle is embedded into quotes, work orders and invoices with a vehicle_ column prefix.
type Vehicle struct {
	Make  string `gorm:"type:varchar(100)" json:"make"`
	Model string `gorm:"type:varchar(100)" json:"model"`
	Year  int    `json:"year"`
	VIN   string `gorm:"type:varchar(32)" json:"vin"`
}
