package rbac

const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
	RoleAdmin   = "admin"
)

const (
	PermQuizCreate     = "quiz:create"
	PermQuizView       = "quiz:view"
	PermQuizExport     = "quiz:export"
	PermAttemptCreate  = "attempt:create"
	PermAttemptSubmit  = "attempt:submit"
	PermAttemptViewOwn = "attempt:view-own"
	PermAttemptViewAll = "attempt:view-all"
)

var RolePermissions = map[string][]string{
	RoleStudent: {
		PermQuizView,
		PermAttemptCreate,
		PermAttemptSubmit,
		PermAttemptViewOwn,
	},
	RoleTeacher: {
		"quiz:*",
		PermAttemptViewAll,
	},
	RoleAdmin: {
		"*", // everything
	},
}
