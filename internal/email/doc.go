// Package email entrega los mails que el coordinador dispara por su cuenta:
// el link de ingreso sin contraseña que emite el emulador local y la
// despedida después de borrar una cuenta.
//
// Dos Sender disponibles:
//   - SMTPSender: go-mail contra un servidor real (o Mailpit en desarrollo).
//   - LogSender: no envía nada, deja el mail en el log. Default del emulador.
//
// Los templates viven embebidos en templates/ (html + txt por mail).
package email
