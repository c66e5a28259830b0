package main

import (
	"context"

	"github.com/trezcool/lms-portal/core/user"
)

// addUser creates an active account.
func (cli *commandLine) addUser(name, email, phone string, role user.Role, pwd string) error {
	_, err := cli.usrSvc.Create(context.Background(), user.NewAccount{
		Name:     name,
		Email:    email,
		Phone:    phone,
		Role:     role,
		Password: pwd,
	})
	return err
}
