package state

// Reserved keys carry system metadata alongside user properties in the same
// flat state. Everything under the "sys:" prefix is maintained by the engine
// and never writable through the schema walk.
const (
	KeyPrefix = "sys:"

	KeyID          = "sys:id"
	KeyParentID    = "sys:parentId"
	KeyAncestorIDs = "sys:ancestorIds"
	KeyName        = "sys:name"
	KeyPos         = "sys:pos"
	KeyPrimaryType = "sys:primaryType"
	KeyFacets      = "sys:facets"

	KeyIsVersion            = "sys:isVersion"
	KeyIsLatestVersion      = "sys:isLatestVersion"
	KeyIsLatestMajorVersion = "sys:isLatestMajorVersion"
	KeyMajorVersion         = "sys:majorVersion"
	KeyMinorVersion         = "sys:minorVersion"
	KeyVersionSeriesID      = "sys:versionSeriesId"
	KeyVersionCreated       = "sys:versionCreated"
	KeyVersionLabel         = "sys:versionLabel"
	KeyVersionDescription   = "sys:versionDescription"
	KeyBaseVersionID        = "sys:baseVersionId"
	KeyIsCheckedIn          = "sys:isCheckedIn"

	KeyIsProxy              = "sys:isProxy"
	KeyProxyTargetID        = "sys:proxyTargetId"
	KeyProxyVersionSeriesID = "sys:proxyVersionSeriesId"
	KeyProxyIDs             = "sys:proxyIds"

	KeyLockOwner   = "sys:lockOwner"
	KeyLockCreated = "sys:lockCreated"

	KeyLifecycleState  = "sys:lifecycleState"
	KeyLifecyclePolicy = "sys:lifecyclePolicy"

	KeyACL     = "sys:acl"
	KeyReadACL = "sys:readAcl"

	KeyFulltextSimple = "sys:fulltextSimple"
	KeyFulltextBinary = "sys:fulltextBinary"
)

// Sub-state keys used inside serialized ACLs.
const (
	KeyACLName       = "name"
	KeyACLEntries    = "entries"
	KeyACEPrincipal  = "principal"
	KeyACEPermission = "permission"
	KeyACEGrant      = "grant"
)

// Sub-state keys used inside blob values.
const (
	KeyBlobName     = "name"
	KeyBlobMimeType = "mime-type"
	KeyBlobEncoding = "encoding"
	KeyBlobDigest   = "digest"
	KeyBlobLength   = "length"
)

// IsSystemKey reports whether key is engine-maintained metadata.
func IsSystemKey(key string) bool {
	return len(key) >= len(KeyPrefix) && key[:len(KeyPrefix)] == KeyPrefix
}

// FulltextOnly reports whether a write to key only affects fulltext data and
// therefore must not force a full resave of the document.
func FulltextOnly(key string) bool {
	return key == KeyFulltextSimple || key == KeyFulltextBinary
}
