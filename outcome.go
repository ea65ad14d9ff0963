package credentials

// LoginStatus is the expected result of a login attempt.
type LoginStatus int

const (
	LoginUnknown LoginStatus = iota
	LoginSucceeded
	LoginInvalidCredentials
	LoginLockedOut
	LoginEmailNotConfirmed
	LoginInactive
)

func (s LoginStatus) String() string {
	switch s {
	case LoginSucceeded:
		return "succeeded"
	case LoginInvalidCredentials:
		return "invalid_credentials"
	case LoginLockedOut:
		return "locked_out"
	case LoginEmailNotConfirmed:
		return "email_not_confirmed"
	case LoginInactive:
		return "inactive"
	default:
		return "unknown"
	}
}

// LoginOutcome is returned by the validator for every expected result.
// Account and Roles are only set on success.
type LoginOutcome struct {
	Status  LoginStatus
	Account *Account
	Roles   []string
}

// Succeeded reports whether the login was accepted.
func (o LoginOutcome) Succeeded() bool {
	return o.Status == LoginSucceeded
}

// Err maps a rejected outcome to its user facing error.
func (o LoginOutcome) Err() error {
	switch o.Status {
	case LoginSucceeded:
		return nil
	case LoginLockedOut:
		return ErrLockedOut
	case LoginEmailNotConfirmed:
		return ErrEmailNotConfirmed
	case LoginInactive:
		return ErrInactive
	default:
		return ErrInvalidCredentials
	}
}

func loginRejected(status LoginStatus) LoginOutcome {
	return LoginOutcome{Status: status}
}
