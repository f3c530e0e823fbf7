/*
Package uplift turns colours into plausible reflectance spectra.

Each vertex of a scene is solved for a bounded reflectance that reproduces
its colour under the uplifting colour system (and any further constraints).
The boundary of its metamer mismatch volume under a free colour system is
traced and meshed for visualisation and containment queries. The solved
vertices, together with the boundary of the object colour solid, form a
tetrahedral tessellation of colour space through which arbitrary colours and
whole textures are uplifted by barycentric interpolation of spectra.

An Engine drives this once per frame, recomputing only what changed.
*/
package uplift

import "fmt"

type VersionInfo struct {
	Major, Minor, Patch uint
}

func (v VersionInfo) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

func (v VersionInfo) Equal(o VersionInfo) bool {
	return v.Major == o.Major && v.Minor == o.Minor && v.Patch == o.Patch
}

func (v VersionInfo) After(o VersionInfo) bool {
	switch {
	case v.Major == o.Major:
		switch {
		case v.Minor == o.Minor:
			return v.Patch > o.Patch
		case v.Minor > o.Minor:
			return true
		case v.Minor < o.Minor:
			return false
		}
	case v.Major > o.Major:
		return true
	case v.Major < o.Major:
		return false
	}
	return false
}

func (v VersionInfo) Before(o VersionInfo) bool {
	return !v.Equal(o) && !v.After(o)
}

var Version = VersionInfo{0, 3, 0}
