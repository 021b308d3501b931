package utils

import (
	"errors"
	"os"
	"strings"

	"voicebridge/internal/config"

	"golang.org/x/crypto/bcrypt"
)

func ParseUsers(users string) ([]config.User, error) {
	var usersParsed []config.User

	users = strings.TrimSpace(users)

	if users == "" {
		return []config.User{}, nil
	}

	userList := strings.Split(users, ",")

	for _, user := range userList {
		if strings.TrimSpace(user) == "" {
			continue
		}
		parsed, err := ParseUser(strings.TrimSpace(user))
		if err != nil {
			return []config.User{}, err
		}
		usersParsed = append(usersParsed, parsed)
	}

	return usersParsed, nil
}

func GetUsers(conf string, file string) ([]config.User, error) {
	var users string

	if conf == "" && file == "" {
		return []config.User{}, nil
	}

	if conf != "" {
		users += conf
	}

	if file != "" {
		contents, err := ReadFile(file)
		if err != nil {
			return []config.User{}, err
		}
		if users != "" {
			users += ","
		}
		users += ParseFileToLine(contents)
	}

	return ParseUsers(users)
}

func ParseUser(user string) (config.User, error) {
	// Docker compose escapes dollar signs in bcrypt hashes
	if strings.Contains(user, "$$") {
		user = strings.ReplaceAll(user, "$$", "$")
	}

	userSplit := strings.SplitN(user, ":", 2)

	if len(userSplit) != 2 || strings.TrimSpace(userSplit[0]) == "" || strings.TrimSpace(userSplit[1]) == "" {
		return config.User{}, errors.New("invalid user format")
	}

	return config.User{
		Username: strings.TrimSpace(userSplit[0]),
		Password: strings.TrimSpace(userSplit[1]),
	}, nil
}

func CheckPassword(user config.User, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) == nil
}

func GetUser(users []config.User, username string) (config.User, bool) {
	for _, user := range users {
		if user.Username == username {
			return user, true
		}
	}
	return config.User{}, false
}

func ReadFile(file string) (string, error) {
	if _, err := os.Stat(file); err != nil {
		return "", err
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return "", err
	}

	return string(data), nil
}

func ParseFileToLine(content string) string {
	lines := strings.Split(content, "\n")
	users := make([]string, 0)

	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		users = append(users, strings.TrimSpace(line))
	}

	return strings.Join(users, ",")
}

// GetBearerToken extracts the token from an Authorization header, or an
// empty string when the header is not a bearer credential.
func GetBearerToken(header string) string {
	if header == "" {
		return ""
	}

	parts := strings.SplitN(header, " ", 2)

	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
