package database

import (
	"context"
	"fmt"
	"net"
	"sort"
)

// IPResolver — источник DNS-ответов. Реализуется *net.Resolver.
type IPResolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// PreferIPv4Lookup возвращает функцию разрешения имени для pgconn,
// которая ставит IPv4-адреса перед IPv6. pgconn перебирает адреса по порядку,
// поэтому IPv6 используется только если ни один IPv4-адрес не принял соединение.
// Если resolver == nil, используется net.DefaultResolver.
func PreferIPv4Lookup(resolver IPResolver) func(ctx context.Context, host string) ([]string, error) {
	if resolver == nil {
		resolver = net.DefaultResolver
	}

	return func(ctx context.Context, host string) ([]string, error) {
		// IP-литерал и unix-сокет не разрешаем
		if ip := net.ParseIP(host); ip != nil || isUnixSocket(host) {
			return []string{host}, nil
		}

		addrs, err := resolver.LookupIPAddr(ctx, host)
		if err != nil {
			return nil, fmt.Errorf("ошибка разрешения хоста %s: %w", host, err)
		}
		if len(addrs) == 0 {
			return nil, fmt.Errorf("хост %s не имеет адресов", host)
		}

		// Стабильная сортировка сохраняет порядок DNS внутри каждого семейства
		sort.SliceStable(addrs, func(i, j int) bool {
			return addrs[i].IP.To4() != nil && addrs[j].IP.To4() == nil
		})

		result := make([]string, 0, len(addrs))
		for _, a := range addrs {
			result = append(result, a.IP.String())
		}
		return result, nil
	}
}

// isUnixSocket — pgconn передаёт путь к сокету как host, начинающийся с "/".
func isUnixSocket(host string) bool {
	return len(host) > 0 && host[0] == '/'
}
