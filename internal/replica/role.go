// Пакет replica — несколько экземпляров Data Storage над одним репозиторием.
//
// Экземпляры работают с общим хранилищем. Изменения метаданных выполняются
// read-modify-write, поэтому писать может только leader (держатель блокировки
// {base}/.leader.lock). Follower обслуживает чтение и проксирует запись к leader.
package replica

// Role — роль экземпляра.
type Role string

const (
	// RoleStandalone — единственный экземпляр (standalone mode).
	RoleStandalone Role = "standalone"
	// RoleLeader — leader: обрабатывает запись, запускает GC и сверку.
	RoleLeader Role = "leader"
	// RoleFollower — follower: обслуживает чтение, проксирует запись к leader.
	RoleFollower Role = "follower"
)

// RoleProvider — интерфейс получения текущей роли экземпляра.
// Реализации: StandaloneProvider, Election.
type RoleProvider interface {
	// CurrentRole возвращает текущую роль экземпляра.
	CurrentRole() Role
	// IsLeader возвращает true, если экземпляр является leader.
	IsLeader() bool
	// LeaderAddr возвращает адрес leader (host:port).
	// Пустая строка, если leader неизвестен.
	LeaderAddr() string
}

// StandaloneProvider — единственный экземпляр без election (DS_REPLICA_MODE=standalone).
type StandaloneProvider struct{}

// CurrentRole возвращает RoleStandalone.
func (p *StandaloneProvider) CurrentRole() Role {
	return RoleStandalone
}

// IsLeader всегда true.
func (p *StandaloneProvider) IsLeader() bool {
	return true
}

// LeaderAddr возвращает пустую строку.
func (p *StandaloneProvider) LeaderAddr() string {
	return ""
}
