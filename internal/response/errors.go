package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden            ErrCode = "FORBIDDEN"
	ErrStudentAccessOnly    ErrCode = "STUDENT_ACCESS_ONLY"
	ErrInstructorAccessOnly ErrCode = "INSTRUCTOR_ACCESS_ONLY"
	ErrNotEnrolled          ErrCode = "NOT_ENROLLED"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound        ErrCode = "NOT_FOUND"
	ErrSessionNotFound ErrCode = "SESSION_NOT_FOUND"

	// ─── Exam session ──────────────────────────────────────────────────
	ErrExamNotAvailable     ErrCode = "EXAM_NOT_AVAILABLE"
	ErrNoQuestions          ErrCode = "NO_QUESTIONS"
	ErrAlreadySubmitted     ErrCode = "ALREADY_SUBMITTED"
	ErrConfirmationRequired ErrCode = "CONFIRMATION_REQUIRED"
	ErrSessionNotActive     ErrCode = "SESSION_NOT_ACTIVE"
	ErrAnswersFrozen        ErrCode = "ANSWERS_FROZEN"
	ErrUnknownQuestion      ErrCode = "UNKNOWN_QUESTION"
	ErrResultNotSaved       ErrCode = "RESULT_NOT_SAVED"

	// ─── Optical grading ───────────────────────────────────────────────
	ErrOpticalDisabled     ErrCode = "OPTICAL_DISABLED"
	ErrNotOpticalExam      ErrCode = "NOT_OPTICAL_EXAM"
	ErrDetectorUnavailable ErrCode = "DETECTOR_UNAVAILABLE"

	// ─── Media ─────────────────────────────────────────────────────────
	ErrFileRequired ErrCode = "FILE_REQUIRED"
	ErrFileTooLarge ErrCode = "FILE_TOO_LARGE"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal           ErrCode = "INTERNAL_ERROR"
	ErrServiceUnavailable ErrCode = "SERVICE_UNAVAILABLE"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "Token autentikasi diperlukan."
	case ErrTokenInvalid:
		return "Token autentikasi tidak valid."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "Anda tidak memiliki izin untuk mengakses sumber daya ini."
	case ErrStudentAccessOnly:
		return "Sumber daya ini terbatas untuk siswa."
	case ErrInstructorAccessOnly:
		return "Sumber daya ini terbatas untuk pengajar."
	case ErrNotEnrolled:
		return "Anda tidak terdaftar pada ujian ini."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validasi gagal. Silakan periksa masukan Anda."
	case ErrInvalidID:
		return "Format ID tidak valid."
	case ErrInvalidPayload:
		return "Payload permintaan tidak valid."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Sumber daya tidak ditemukan."
	case ErrSessionNotFound:
		return "Sesi ujian tidak ditemukan."

	// ─── Exam session ──────────────────────────────────────────────────
	case ErrExamNotAvailable:
		return "Ujian ini saat ini tidak tersedia."
	case ErrNoQuestions:
		return "Ujian ini tidak memiliki pertanyaan."
	case ErrAlreadySubmitted:
		return "Ujian ini sudah dikumpulkan."
	case ErrConfirmationRequired:
		return "Pengumpulan ujian harus dikonfirmasi."
	case ErrSessionNotActive:
		return "Sesi ujian tidak aktif."
	case ErrAnswersFrozen:
		return "Jawaban tidak dapat diubah lagi."
	case ErrUnknownQuestion:
		return "Pertanyaan tidak termasuk dalam ujian ini."
	case ErrResultNotSaved:
		return "Hasil ujian belum tersimpan. Silakan coba kumpulkan lagi."

	// ─── Optical grading ───────────────────────────────────────────────
	case ErrOpticalDisabled:
		return "Penilaian lembar jawaban optik belum dikonfigurasi."
	case ErrNotOpticalExam:
		return "Ujian ini tidak menggunakan lembar jawaban optik."
	case ErrDetectorUnavailable:
		return "Layanan pembaca lembar jawaban tidak dapat dihubungi."

	// ─── Media ─────────────────────────────────────────────────────────
	case ErrFileRequired:
		return "Unggah file diperlukan."
	case ErrFileTooLarge:
		return "Ukuran file melebihi batas."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Terlalu banyak permintaan. Silakan coba lagi nanti."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Terjadi kesalahan server internal."
	case ErrServiceUnavailable:
		return "Layanan sedang tidak tersedia. Silakan coba lagi nanti."
	default:
		return "Terjadi kesalahan yang tidak terduga."
	}
}
