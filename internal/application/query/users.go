package query

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rms-hub/residency-hub/internal/domain/faculty"
	"github.com/rms-hub/residency-hub/internal/domain/resident"
	"github.com/rms-hub/residency-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// USERS QUERIES
// Список пользователей для выбора на входе. Пользователь - человек из
// ростера: активный резидент, активный преподаватель или оба сразу, если
// записи совпадают по email.
// ══════════════════════════════════════════════════════════════════════════════

// Роли пользователя в программах.
const (
	RoleResident = "resident"
	RoleFaculty  = "faculty"
)

type GetUserQuery struct {
	UserID string
}

// UserDTO - пользователь в списке. Role - роли через запятую, Roles - те же
// роли списком.
type UserDTO struct {
	ID        string   `json:"id"`
	FirstName string   `json:"first_name"`
	LastName  string   `json:"last_name"`
	Email     string   `json:"email"`
	Role      string   `json:"role"`
	Roles     []string `json:"roles"`
}

// MembershipDTO - роль пользователя в одной программе.
type MembershipDTO struct {
	Role      string `json:"role"`
	ProgramID string `json:"program_id"`
}

// UserDetailDTO - пользователь с ролями и профилями. Профиль, которого нет,
// сериализуется как null.
type UserDetailDTO struct {
	UserDTO
	Memberships []MembershipDTO `json:"memberships"`
	Resident    *ResidentDTO    `json:"resident"`
	Faculty     *FacultyDTO     `json:"faculty"`
}

// UsersHandler отвечает на запросы списка пользователей.
type UsersHandler struct {
	catalog Catalog
}

func NewUsersHandler(catalog Catalog) *UsersHandler {
	return &UsersHandler{catalog: catalog}
}

// List возвращает активных пользователей по фамилии, затем по имени.
func (h *UsersHandler) List(ctx context.Context) ([]UserDTO, error) {
	people, err := h.people(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]UserDTO, len(people))
	for i, p := range people {
		out[i] = p.summary()
	}
	return out, nil
}

// Get ищет пользователя по id резидента или преподавателя. Возвращает
// ErrUserNotFound, если активной записи нет.
func (h *UsersHandler) Get(ctx context.Context, q GetUserQuery) (*UserDetailDTO, error) {
	people, err := h.people(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range people {
		if p.has(q.UserID) {
			return p.detail(), nil
		}
	}
	return nil, shared.ErrUserNotFound
}

// person - один человек, собранный из записей ростера.
type person struct {
	resident *resident.Resident
	faculty  *faculty.Faculty
}

func (h *UsersHandler) people(ctx context.Context) ([]*person, error) {
	residents, err := h.catalog.Residents.ListActive(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list residents: %w", err)
	}
	staff, err := h.catalog.Faculty.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list faculty: %w", err)
	}

	byEmail := make(map[string]*person, len(residents)+len(staff))
	out := make([]*person, 0, len(residents)+len(staff))
	for i := range residents {
		r := &residents[i]
		p := &person{resident: r}
		out = append(out, p)
		if key := emailKey(r.Email); key != "" {
			byEmail[key] = p
		}
	}
	for i := range staff {
		f := &staff[i]
		if p, ok := byEmail[emailKey(f.Email)]; ok && p.faculty == nil {
			p.faculty = f
			continue
		}
		out = append(out, &person{faculty: f})
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].names(), out[j].names()
		if a[0] != b[0] {
			return a[0] < b[0]
		}
		if a[1] != b[1] {
			return a[1] < b[1]
		}
		return out[i].id() < out[j].id()
	})
	return out, nil
}

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// id - id резидента, если он есть, иначе id преподавателя.
func (p *person) id() string {
	if p.resident != nil {
		return p.resident.ID.String()
	}
	return p.faculty.ID.String()
}

func (p *person) has(id string) bool {
	if p.resident != nil && p.resident.ID.String() == id {
		return true
	}
	return p.faculty != nil && p.faculty.ID.String() == id
}

// names возвращает фамилию и имя.
func (p *person) names() [2]string {
	if p.resident != nil {
		return [2]string{p.resident.LastName, p.resident.FirstName}
	}
	return [2]string{p.faculty.LastName, p.faculty.FirstName}
}

func (p *person) roles() []string {
	roles := make([]string, 0, 2)
	if p.resident != nil {
		roles = append(roles, RoleResident)
	}
	if p.faculty != nil {
		roles = append(roles, RoleFaculty)
	}
	return roles
}

func (p *person) summary() UserDTO {
	names := p.names()
	var email string
	if p.resident != nil {
		email = p.resident.Email
	} else {
		email = p.faculty.Email
	}
	roles := p.roles()
	return UserDTO{
		ID:        p.id(),
		FirstName: names[1],
		LastName:  names[0],
		Email:     email,
		Role:      strings.Join(roles, ","),
		Roles:     roles,
	}
}

func (p *person) detail() *UserDetailDTO {
	out := &UserDetailDTO{UserDTO: p.summary(), Memberships: []MembershipDTO{}}
	if p.resident != nil {
		dto := newResidentDTO(*p.resident)
		out.Resident = &dto
		out.Memberships = append(out.Memberships, MembershipDTO{Role: RoleResident, ProgramID: p.resident.ProgramID.String()})
	}
	if p.faculty != nil {
		dto := newFacultyDTO(*p.faculty)
		out.Faculty = &dto
		out.Memberships = append(out.Memberships, MembershipDTO{Role: RoleFaculty, ProgramID: p.faculty.ProgramID.String()})
	}
	return out
}
