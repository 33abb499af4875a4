package cfapi

import "testing"

func TestTranslate(t *testing.T) {
	creds := Credentials{ZoneID: "zone1", AccountID: "acct1"}
	cases := []struct{ in, want string }{
		{"/dns", "/zones/zone1/dns_records"},
		{"/dns/rec1", "/zones/zone1/dns_records/rec1"},
		{"/dns?type=CNAME&page=2", "/zones/zone1/dns_records?type=CNAME&page=2"},
		{"/tunnels", "/accounts/acct1/tunnels"},
		{"/tunnels/t1", "/accounts/acct1/tunnels/t1"},
		{"/tunnels/t1/configurations", "/accounts/acct1/cfd_tunnel/t1/configurations"},
		{"/tunnels/t1/delete_config", "/accounts/acct1/cfd_tunnel/t1/configurations"},
		{"/tunnels/t1/connections", "/accounts/acct1/tunnels/t1/connections"},
		{"/dns/a%2Fb", "/zones/zone1/dns_records/a%2Fb"},
		{"/user/tokens/verify", "/user/tokens/verify"},
	}
	for _, c := range cases {
		if got := Translate(c.in, creds); got != c.want {
			t.Fatalf("Translate(%q)=%q want %q", c.in, got, c.want)
		}
	}
}

func TestScopeOf(t *testing.T) {
	if ScopeOf("/dns/x") != ScopeZone || ScopeOf("/tunnels") != ScopeAccount || ScopeOf("/dnsx") != ScopeKey {
		t.Fatalf("unexpected scopes")
	}
}
