package validator

import "fieldgate/internal/normalize"

// Profile supplies the field-specific pieces of an otherwise shared
// validation pipeline: how to normalize raw input and when a value is
// syntactically worth a remote lookup.
type Profile struct {
	Name      string
	Normalize func(string) string
	Plausible func(string) bool
}

// PhoneProfile validates phone entries normalized to an international form.
func PhoneProfile() Profile {
	return Profile{
		Name:      "phone",
		Normalize: normalize.Phone,
		Plausible: normalize.PlausiblePhone,
	}
}

// EmailProfile validates email entries. Suggestions from the remote side
// (did_you_mean) only occur for this profile.
func EmailProfile() Profile {
	return Profile{
		Name:      "email",
		Normalize: normalize.Email,
		Plausible: normalize.PlausibleEmail,
	}
}
