package auth

// Role is the closed set of caller roles carried in the bearer credential.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleDoctor    Role = "doctor"
	RoleFrontDesk Role = "front_desk"
	RolePatient   Role = "patient"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleDoctor, RoleFrontDesk, RolePatient:
		return true
	}
	return false
}

// Operation names a privileged action on the appointment surface.
type Operation string

const (
	OpBookAppointment   Operation = "appointment:book"
	OpListAppointments  Operation = "appointment:list"
	OpGetAppointment    Operation = "appointment:get"
	OpModifyAppointment Operation = "appointment:modify"
	OpCancelAppointment Operation = "appointment:cancel"
	OpDeleteAppointment Operation = "appointment:delete"
)

// capabilities maps each role to the operations it may perform. Checked
// centrally by RequireOperation instead of ad-hoc role comparisons in
// handlers. Deletion is reserved to administrators; doctors get read-only
// access to their own agenda.
var capabilities = map[Role]map[Operation]bool{
	RoleAdmin: {
		OpBookAppointment:   true,
		OpListAppointments:  true,
		OpGetAppointment:    true,
		OpModifyAppointment: true,
		OpCancelAppointment: true,
		OpDeleteAppointment: true,
	},
	RolePatient: {
		OpBookAppointment:   true,
		OpListAppointments:  true,
		OpGetAppointment:    true,
		OpModifyAppointment: true,
		OpCancelAppointment: true,
	},
	RoleFrontDesk: {
		OpBookAppointment:   true,
		OpListAppointments:  true,
		OpGetAppointment:    true,
		OpModifyAppointment: true,
		OpCancelAppointment: true,
	},
	RoleDoctor: {
		OpListAppointments: true,
		OpGetAppointment:   true,
	},
}

// Can reports whether the role is allowed to perform op.
func (r Role) Can(op Operation) bool {
	return capabilities[r][op]
}
