package rediskey

import "fmt"

const (
	SequencePrefix = "seq"
	LockPrefix     = "lock"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildDailySequenceKey returns "seq:{prefix}:{yymmdd}"
func BuildDailySequenceKey(prefix, day string) string {
	return NamespaceKey(SequencePrefix, NamespaceKey(prefix, day))
}

// BuildLockKey returns "lock:{name}"
func BuildLockKey(name string) string {
	return NamespaceKey(LockPrefix, name)
}
