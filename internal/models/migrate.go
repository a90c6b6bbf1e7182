package models

// All lists the models managed by AutoMigrate, parents first.
func All() []interface{} {
	return []interface{}{
		&User{},
		&RetakeGrant{},
		&Test{},
		&TestQuestion{},
		&TestGroup{},
		&Result{},
		&ActivityLog{},
	}
}
