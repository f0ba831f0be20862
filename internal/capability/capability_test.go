package capability

import "testing"

func TestStaticMultiRoleWhitelist_KnownAdapter(t *testing.T) {
	if !staticMultiRoleWhitelist["hci0"] {
		t.Fatal("expected hci0 in the static whitelist")
	}
	if staticMultiRoleWhitelist["hci9"] {
		t.Fatal("did not expect an unknown adapter in the static whitelist")
	}
}
