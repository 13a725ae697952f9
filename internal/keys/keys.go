// Package keys builds and classifies the names of every key this application
// stores. Nothing outside this package concatenates key strings by hand.
//
// The namespace:
//
//	user:{id}                   UserProfile JSON
//	user:email:{email}          plain string, the owning user id
//	userData:{id}               UserData JSON
//	userData:email:{email}      legacy email-keyed UserData (migrated away, never written)
//	userData                    legacy single-tenant UserData from before logins existed
//	rewards:catalog             global reward catalog JSON array
package keys

import (
	"strings"

	"github.com/sakif/habit-rewards/internal/model"
)

const (
	ProfilePrefix         = "user:"
	EmailPointerPrefix    = "user:email:"
	DataPrefix            = "userData:"
	LegacyEmailDataPrefix = "userData:email:"

	LegacyData    = "userData"
	RewardCatalog = "rewards:catalog"
)

// Profile returns the key of the profile with the given id.
func Profile(id string) string {
	return ProfilePrefix + id
}

// EmailPointer returns the key of the email -> id pointer. The email is
// normalized here so callers cannot forget to.
func EmailPointer(email string) string {
	return EmailPointerPrefix + model.NormalizeEmail(email)
}

// Data returns the key of a user's aggregate.
func Data(id string) string {
	return DataPrefix + id
}

// Kind is the class of a stored key.
type Kind string

const (
	KindProfile         Kind = "profile"
	KindEmailPointer    Kind = "pointer"
	KindData            Kind = "data"
	KindLegacyEmailData Kind = "legacy-email-data"
	KindLegacyData      Kind = "legacy-data"
	KindRewardCatalog   Kind = "catalog"
	KindOther           Kind = "other"
)

// Classify returns the kind of key and the id or email embedded in it.
// For profile and data keys the second value is the user id; for pointer and
// legacy-email-data keys it is the email. The longer prefixes are checked
// first because "user:email:" also starts with "user:".
func Classify(key string) (Kind, string) {
	switch {
	case key == LegacyData:
		return KindLegacyData, ""
	case key == RewardCatalog:
		return KindRewardCatalog, ""
	case strings.HasPrefix(key, EmailPointerPrefix):
		return nonEmpty(KindEmailPointer, key[len(EmailPointerPrefix):])
	case strings.HasPrefix(key, LegacyEmailDataPrefix):
		return nonEmpty(KindLegacyEmailData, key[len(LegacyEmailDataPrefix):])
	case strings.HasPrefix(key, ProfilePrefix):
		return nonEmpty(KindProfile, key[len(ProfilePrefix):])
	case strings.HasPrefix(key, DataPrefix):
		return nonEmpty(KindData, key[len(DataPrefix):])
	default:
		return KindOther, ""
	}
}

func nonEmpty(kind Kind, rest string) (Kind, string) {
	if rest == "" {
		return KindOther, ""
	}
	return kind, rest
}
