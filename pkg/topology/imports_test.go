package topology

import (
	"testing"

	"qubecore/testutil"
)

func TestTopologyStaysStandalone(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.InternalImportForbidden, "pkg/topology is importable outside the module")
	testutil.AssertNoTransitiveDependency(t, ".", testutil.NonStdlibForbidden("qubecore"), "pkg/topology depends on the standard library only")
}
