package backend

import (
	"context"
	"errors"
	"net/http"
)

// User is the signed-in account.
type User struct {
	ID             ID     `json:"id"`
	Email          string `json:"email"`
	Name           string `json:"name"`
	IsVerified     bool   `json:"is_verified"`
	IsStaff        bool   `json:"is_staff"`
	IsSuperuser    bool   `json:"is_superuser"`
	IsAdmin        bool   `json:"is_admin"`
	PreferredTheme string `json:"preferred_theme"`
}

// Profile is the editable personal data of the user.
type Profile struct {
	Name           string  `json:"name"`
	Email          string  `json:"email"`
	BirthDate      *string `json:"birth_date"`
	Gender         string  `json:"gender"`
	DateCreated    string  `json:"date_created"`
	PreferredTheme string  `json:"preferred_theme"`
}

// ProfileUpdate carries the fields accepted by UpdateProfile. BirthDate uses
// YYYY-MM-DD; nil clears it.
type ProfileUpdate struct {
	Name      string  `json:"name"`
	BirthDate *string `json:"birth_date"`
	Gender    string  `json:"gender"`
}

// Settings are the user's client preferences.
type Settings struct {
	PreferredTheme   string `json:"preferred_theme"`
	PasswordRequired bool   `json:"password_required"`
}

// Registration is a new account request. The account has to be verified
// before it can sign in.
type Registration struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// Register creates an account and returns the backend's confirmation message.
func (c *Client) Register(ctx context.Context, reg Registration) (string, error) {
	if reg.ConfirmPassword == "" {
		reg.ConfirmPassword = reg.Password
	}
	return c.doMessage(ctx, http.MethodPost, "auth/register/", reg)
}

// ChangePassword replaces the signed-in user's password.
func (c *Client) ChangePassword(ctx context.Context, current, next string) (string, error) {
	body := map[string]string{
		"current_password": current,
		"new_password":     next,
		"confirm_password": next,
	}
	return c.doMessage(ctx, http.MethodPost, "auth/change-password/", body)
}

// TokenLogin exchanges credentials for an API token and stores it in c.
func (c *Client) TokenLogin(ctx context.Context, email, password string) (string, User, error) {
	var data struct {
		Token string `json:"token"`
		User  User   `json:"user"`
	}
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "auth/token-login/", body, &data); err != nil {
		return "", User{}, err
	}
	if data.Token == "" {
		return "", User{}, errors.New("login response is missing token")
	}
	c.SetToken(data.Token)
	return data.Token, data.User, nil
}

// TokenLogout revokes the current token and forgets it.
func (c *Client) TokenLogout(ctx context.Context) error {
	if c.Token() == "" {
		return nil
	}
	err := c.do(ctx, http.MethodPost, "auth/token-logout/", nil, nil)
	c.SetToken("")
	return err
}

// Me returns the signed-in user.
func (c *Client) Me(ctx context.Context) (User, error) {
	var data struct {
		User User `json:"user"`
	}
	err := c.do(ctx, http.MethodGet, "auth/me/", nil, &data)
	return data.User, err
}

// Profile returns the user's profile.
func (c *Client) Profile(ctx context.Context) (Profile, error) {
	var data struct {
		Profile Profile `json:"profile"`
	}
	err := c.do(ctx, http.MethodGet, "auth/profile/", nil, &data)
	return data.Profile, err
}

// UpdateProfile saves profile fields and returns the stored profile.
func (c *Client) UpdateProfile(ctx context.Context, upd ProfileUpdate) (Profile, error) {
	var data struct {
		Profile Profile `json:"profile"`
	}
	err := c.do(ctx, http.MethodPatch, "auth/profile/", upd, &data)
	return data.Profile, err
}

// Settings returns the user's preferences.
func (c *Client) Settings(ctx context.Context) (Settings, error) {
	var data struct {
		Settings Settings `json:"settings"`
	}
	err := c.do(ctx, http.MethodGet, "auth/settings/", nil, &data)
	return data.Settings, err
}

// UpdateTheme stores the preferred theme ("light" or "dark").
func (c *Client) UpdateTheme(ctx context.Context, theme string) (Settings, error) {
	var data struct {
		Settings Settings `json:"settings"`
	}
	body := map[string]string{"preferred_theme": theme}
	err := c.do(ctx, http.MethodPatch, "auth/settings/", body, &data)
	return data.Settings, err
}
