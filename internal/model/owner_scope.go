package model

import "github.com/google/uuid"

// OwnerScope 统计归属：具体用户或全局（无用户）桶
type OwnerScope struct {
	userID   uuid.UUID
	specific bool
}

func UserScope(id uuid.UUID) OwnerScope {
	return OwnerScope{userID: id, specific: true}
}

func GlobalScope() OwnerScope {
	return OwnerScope{}
}

// UserID returns the owner id; ok is false for the global bucket.
func (s OwnerScope) UserID() (id uuid.UUID, ok bool) {
	return s.userID, s.specific
}

func (s OwnerScope) IsGlobal() bool {
	return !s.specific
}

// Key is the stored owner value: the canonical uuid string, or "" for the global bucket.
func (s OwnerScope) Key() string {
	if !s.specific {
		return ""
	}
	return s.userID.String()
}

func (s OwnerScope) String() string {
	if !s.specific {
		return "global"
	}
	return s.userID.String()
}
