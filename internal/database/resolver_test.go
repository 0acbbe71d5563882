package database

import (
	"context"
	"errors"
	"net"
	"reflect"
	"testing"
)

// fakeResolver возвращает заранее заданные адреса.
type fakeResolver struct {
	addrs []net.IPAddr
	err   error
	calls int
}

func (f *fakeResolver) LookupIPAddr(_ context.Context, _ string) ([]net.IPAddr, error) {
	f.calls++
	return f.addrs, f.err
}

func ipAddrs(ips ...string) []net.IPAddr {
	result := make([]net.IPAddr, 0, len(ips))
	for _, ip := range ips {
		result = append(result, net.IPAddr{IP: net.ParseIP(ip)})
	}
	return result
}

func TestPreferIPv4Lookup_Order(t *testing.T) {
	tests := []struct {
		name  string
		addrs []net.IPAddr
		want  []string
	}{
		{
			name:  "IPv6 перед IPv4 — переупорядочивание",
			addrs: ipAddrs("2001:db8::1", "10.0.0.1"),
			want:  []string{"10.0.0.1", "2001:db8::1"},
		},
		{
			name:  "только IPv6 — fallback",
			addrs: ipAddrs("2001:db8::1", "2001:db8::2"),
			want:  []string{"2001:db8::1", "2001:db8::2"},
		},
		{
			name:  "порядок внутри семейства сохраняется",
			addrs: ipAddrs("2001:db8::1", "10.0.0.2", "2001:db8::2", "10.0.0.1"),
			want:  []string{"10.0.0.2", "10.0.0.1", "2001:db8::1", "2001:db8::2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lookup := PreferIPv4Lookup(&fakeResolver{addrs: tt.addrs})
			got, err := lookup(context.Background(), "db.example.com")
			if err != nil {
				t.Fatalf("lookup() вернул ошибку: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("lookup() = %v, ожидается %v", got, tt.want)
			}
		})
	}
}

func TestPreferIPv4Lookup_Literals(t *testing.T) {
	r := &fakeResolver{}
	lookup := PreferIPv4Lookup(r)

	for _, host := range []string{"127.0.0.1", "::1", "/var/run/postgresql"} {
		got, err := lookup(context.Background(), host)
		if err != nil {
			t.Fatalf("lookup(%q) вернул ошибку: %v", host, err)
		}
		if len(got) != 1 || got[0] != host {
			t.Errorf("lookup(%q) = %v, ожидается [%s]", host, got, host)
		}
	}
	if r.calls != 0 {
		t.Errorf("resolver вызван %d раз для литералов, ожидается 0", r.calls)
	}
}

func TestPreferIPv4Lookup_Errors(t *testing.T) {
	lookup := PreferIPv4Lookup(&fakeResolver{err: errors.New("no such host")})
	if _, err := lookup(context.Background(), "missing.example.com"); err == nil {
		t.Error("ожидалась ошибка разрешения")
	}

	lookup = PreferIPv4Lookup(&fakeResolver{})
	if _, err := lookup(context.Background(), "empty.example.com"); err == nil {
		t.Error("ожидалась ошибка для пустого ответа DNS")
	}
}
