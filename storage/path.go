package storage

import (
	"strings"

	"github.com/teranos/artificer/artifact"
)

// PrimaryRoot prefixes the paths of primary artifacts
const PrimaryRoot = "/artifact"

// fanOut splits a uuid into two 2-character directory levels and a leaf
func fanOut(uuid string) string {
	u := strings.ToLower(uuid)
	if len(u) < 5 {
		return u
	}
	return u[0:2] + "/" + u[2:4] + "/" + u[4:]
}

// PrimaryPath is the store path of a primary artifact: /artifact/{type}/{u[0:2]}/{u[2:4]}/{u[4:]}.
// Extended types use their extended name.
func PrimaryPath(typeName, uuid string) string {
	return PrimaryRoot + "/" + typeName + "/" + fanOut(uuid)
}

// DerivedPath is the store path of a derived artifact: /{model}/{type}/{u[0:2]}/{u[2:4]}/{u[4:]}
func DerivedPath(model, typeName, uuid string) string {
	return "/" + model + "/" + typeName + "/" + fanOut(uuid)
}

// PathOf returns the store path of a
func PathOf(a *artifact.Artifact) string {
	if a.IsDerived() {
		return DerivedPath(a.Type.Model, a.Type.Type, a.UUID)
	}
	return PrimaryPath(a.Type.QueryName(), a.UUID)
}
