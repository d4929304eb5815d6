package main

import "strings"

// parseOwnerName извлекает имя владельца пода (Deployment, StatefulSet)
// из hostname Kubernetes. Используется как имя вершины графа topologymetrics.
//
//   - StatefulSet: {name}-{ordinal} → {name}
//   - Deployment: {name}-{replicaset hash}-{pod hash} → {name}
//   - иначе hostname возвращается без изменений
func parseOwnerName(hostname string) string {
	parts := strings.Split(hostname, "-")
	if len(parts) < 2 {
		return hostname
	}

	last := parts[len(parts)-1]
	if isDigits(last) {
		return strings.Join(parts[:len(parts)-1], "-")
	}

	if len(parts) >= 3 {
		hash := parts[len(parts)-2]
		if len(last) == 5 && isAlnum(last) && len(hash) >= 9 && len(hash) <= 10 && isAlnum(hash) {
			return strings.Join(parts[:len(parts)-2], "-")
		}
	}
	return hostname
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func isAlnum(s string) bool {
	for _, c := range s {
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}
