package models

type Resource string

const (
	ResourceStudents      Resource = "students"
	ResourceTeachers      Resource = "teachers"
	ResourceParents       Resource = "parents"
	ResourceAdmins        Resource = "admins"
	ResourceClasses       Resource = "classes"
	ResourceSubjects      Resource = "subjects"
	ResourceLessons       Resource = "lessons"
	ResourceExams         Resource = "exams"
	ResourceAssignments   Resource = "assignments"
	ResourceResults       Resource = "results"
	ResourceAttendance    Resource = "attendance"
	ResourceAnnouncements Resource = "announcements"
	ResourceEvents        Resource = "events"
	ResourceFees          Resource = "fees"
	ResourceSessions      Resource = "sessions"
	ResourceAuditLogs     Resource = "audit_logs"
)

type Action string

const (
	ActionRead   Action = "read"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// PrincipalResource is the resource guarding provisioning of a principal kind.
func PrincipalResource(kind PrincipalKind) Resource {
	switch kind {
	case KindTeacher:
		return ResourceTeachers
	case KindStudent:
		return ResourceStudents
	case KindParent:
		return ResourceParents
	default:
		return ResourceAdmins
	}
}
