package handler

import (
	"github.com/99minutos/identity-system/internal/core/domain"
	"github.com/99minutos/identity-system/internal/core/ports"
)

// --- Request → Service input ---

func toRegisterInput(req registerRequest) (ports.RegisterInput, error) {
	role, err := optionalRole(req.Role)
	if err != nil {
		return ports.RegisterInput{}, err
	}
	return ports.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Role:     role,
	}, nil
}

func toCreateUserInput(req createUserRequest) (ports.CreateUserInput, error) {
	role, err := domain.ParseRole(req.Role)
	if err != nil {
		return ports.CreateUserInput{}, err
	}
	return ports.CreateUserInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Role:     role,
	}, nil
}

func toUpdateUserInput(req updateUserRequest) (ports.UpdateUserInput, error) {
	in := ports.UpdateUserInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	}
	if req.Role != nil {
		role, err := domain.ParseRole(*req.Role)
		if err != nil {
			return ports.UpdateUserInput{}, err
		}
		in.Role = &role
	}
	return in, nil
}

// --- Service result → Response ---

func toUserResponse(d *ports.UserDetail) userResponse {
	return userResponse{
		ID:        d.ID,
		Username:  d.Username,
		Email:     d.Email,
		Role:      d.Role.String(),
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

func toRoleResponses() []roleResponse {
	roles := domain.Roles()
	out := make([]roleResponse, 0, len(roles))
	for _, r := range roles {
		out = append(out, roleResponse{Name: r.String(), Permissions: r.Permissions()})
	}
	return out
}
