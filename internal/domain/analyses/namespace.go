package analyses

import (
	"strings"

	"github.com/google/uuid"
)

var ownerNamespace = uuid.MustParse("6f1c9a52-3d0e-4b8f-9a55-2a7c1e0b9d44")

// StoragePrefix is the object key prefix reserved for one owner's uploads.
// Owner ids are hashed so arbitrary provider subjects stay key-safe.
func StoragePrefix(owner string) string {
	return "uploads/" + uuid.NewSHA1(ownerNamespace, []byte(owner)).String() + "/"
}

// OwnsStorageID reports whether handle lives in owner's upload namespace.
func OwnsStorageID(owner, handle string) bool {
	prefix := StoragePrefix(owner)
	return strings.HasPrefix(handle, prefix) && len(handle) > len(prefix)
}
