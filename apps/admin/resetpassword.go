package main

import "context"

func (cli *commandLine) resetPassword(contact, pwd string) error {
	return cli.usrSvc.ResetPassword(context.Background(), contact, pwd)
}
