package models

import (
	"fmt"
	"strings"
	"time"
)

type PrincipalKind string

const (
	KindAdmin   PrincipalKind = "ADMIN"
	KindTeacher PrincipalKind = "TEACHER"
	KindStudent PrincipalKind = "STUDENT"
	KindParent  PrincipalKind = "PARENT"
)

// LoginProbeOrder is the table order tried when a login names no user type.
var LoginProbeOrder = []PrincipalKind{KindAdmin, KindTeacher, KindStudent, KindParent}

func ParsePrincipalKind(s string) (PrincipalKind, error) {
	kind := PrincipalKind(strings.ToUpper(strings.TrimSpace(s)))
	if !kind.Valid() {
		return "", fmt.Errorf("unknown user type %q", s)
	}
	return kind, nil
}

func (k PrincipalKind) Valid() bool {
	switch k {
	case KindAdmin, KindTeacher, KindStudent, KindParent:
		return true
	}
	return false
}

// LandingPath is the dashboard a principal of this kind is sent to.
func (k PrincipalKind) LandingPath() string {
	return "/" + strings.ToLower(string(k))
}

// Principal is the identity shared by every kind of account.
type Principal interface {
	GetID() string
	GetUsername() string
	GetPasswordHash() string
	Kind() PrincipalKind
}

type Identity struct {
	ID           string    `json:"id" db:"id"`
	Username     string    `json:"username" db:"username"`
	PasswordHash string    `json:"-" db:"password_hash"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

func (i Identity) GetID() string           { return i.ID }
func (i Identity) GetUsername() string     { return i.Username }
func (i Identity) GetPasswordHash() string { return i.PasswordHash }

type Profile struct {
	Name    string  `json:"name" db:"name"`
	Surname string  `json:"surname" db:"surname"`
	Email   *string `json:"email" db:"email"`
	Phone   *string `json:"phone" db:"phone"`
}

type Admin struct {
	Identity
}

type Teacher struct {
	Identity
	Profile
}

type Student struct {
	Identity
	Profile
	ParentID string `json:"parent_id" db:"parent_id"`
	ClassID  *int   `json:"class_id" db:"class_id"`
}

type Parent struct {
	Identity
	Profile
}

func (Admin) Kind() PrincipalKind   { return KindAdmin }
func (Teacher) Kind() PrincipalKind { return KindTeacher }
func (Student) Kind() PrincipalKind { return KindStudent }
func (Parent) Kind() PrincipalKind  { return KindParent }

// PublicUser is the client-facing view of a principal.
type PublicUser struct {
	ID       string        `json:"id"`
	Username string        `json:"username"`
	UserType PrincipalKind `json:"userType"`
	Name     string        `json:"name,omitempty"`
	Surname  string        `json:"surname,omitempty"`
}

func ToPublicUser(p Principal) PublicUser {
	u := PublicUser{ID: p.GetID(), Username: p.GetUsername(), UserType: p.Kind()}
	switch v := p.(type) {
	case *Teacher:
		u.Name, u.Surname = v.Name, v.Surname
	case *Student:
		u.Name, u.Surname = v.Name, v.Surname
	case *Parent:
		u.Name, u.Surname = v.Name, v.Surname
	}
	return u
}
