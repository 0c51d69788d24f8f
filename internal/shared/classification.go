package shared

// Classification is the coarse role bucket assigned to every account,
// independent of the sub-role ledger.
type Classification string

const (
	ClassificationAdmin          Classification = "admin"
	ClassificationSpecialist     Classification = "specialist"
	ClassificationCenterDirector Classification = "center_director"
	ClassificationMember         Classification = "member"
)

// AdminClassified reports whether the classification carries admin privileges.
func (c Classification) AdminClassified() bool {
	return c == ClassificationAdmin
}

// Valid reports whether the classification is one of the known buckets.
func (c Classification) Valid() bool {
	switch c {
	case ClassificationAdmin, ClassificationSpecialist, ClassificationCenterDirector, ClassificationMember:
		return true
	}
	return false
}
