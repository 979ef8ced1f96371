package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the
// access token on outbound requests.
const AccessTokenHeaderName = "access_token"

// Audit action codes written (encrypted) into audit entries.
const (
	ActionCreateUser    = "CREATE_USER"
	ActionEditUser      = "EDIT_USER"
	ActionArchiveUser   = "ARCHIVE_USER"
	ActionUnarchiveUser = "UNARCHIVE_USER"
	ActionUnlockUser    = "UNLOCK_USER"
)

// SeedCreator is recorded as the creator of the bootstrap super admin.
const SeedCreator = "SYSTEM_SEED"
