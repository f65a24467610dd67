package config

// DomainConfig holds configurable business rules and constraints
type DomainConfig struct {
	// Entity constraints
	MinTitleLength   int
	MaxTitleLength   int
	MaxContentLength int
	MaxTagsPerEntity int
	MaxTagLength     int
	MaxURLLength     int

	// Relationship constraints
	MaxRelationshipsPerEntity int
	MaxDescriptionLength      int
	AllowSelfLinks            bool

	// History constraints
	MaxHistoryPageSize int
}

// DefaultDomainConfig returns the default domain configuration
func DefaultDomainConfig() *DomainConfig {
	return &DomainConfig{
		MinTitleLength:   1,
		MaxTitleLength:   255,
		MaxContentLength: 100000,
		MaxTagsPerEntity: 20,
		MaxTagLength:     50,
		MaxURLLength:     2048,

		MaxRelationshipsPerEntity: 500,
		MaxDescriptionLength:      1000,
		AllowSelfLinks:            false,

		MaxHistoryPageSize: 100,
	}
}
